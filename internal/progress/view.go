package progress

import "sort"

// upsert replaces the entry with the same key in place or appends it, then
// keeps the last capacity entries.
func upsert(list []Entry, e Entry, capacity int) []Entry {
	key := e.Key()
	replaced := false
	for i := range list {
		if list[i].Key() == key {
			list[i] = e
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, e)
	}
	if capacity > 0 && len(list) > capacity {
		list = append([]Entry(nil), list[len(list)-capacity:]...)
	}
	return list
}

func find(list []Entry, key Key) *Entry {
	key = key.Normalize()
	for i := range list {
		if list[i].Key() == key {
			e := list[i]
			return &e
		}
	}
	return nil
}

func filterMedia(list []Entry, mediaID int, mediaType MediaType) []Entry {
	out := []Entry{}
	for _, e := range list {
		if e.MediaID == mediaID && e.MediaType == mediaType {
			out = append(out, e)
		}
	}
	return out
}

// continueWatching builds the view from any list of entries.
func continueWatching(list []Entry) []ContinueWatchingEntry {
	out := []ContinueWatchingEntry{}
	for _, e := range list {
		if !inContinueWatching(e) {
			continue
		}
		out = append(out, ContinueWatchingEntry{Entry: e, ProgressPercent: int(e.CompletionPercent() + 0.5)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if len(out) > ContinueWatchingLimit {
		out = out[:ContinueWatchingLimit]
	}
	return out
}
