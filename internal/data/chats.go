package data

import "sort"

// FoldChats reduces the messages involving userID to one ChatPartner per
// distinct partner, keyed by the greatest timestamp seen for that partner.
// Partners are ordered most recent first; equal times fall back to partner
// id so the order is deterministic. At most limit entries are returned.
func FoldChats(userID string, msgs []*Message, limit int) []ChatPartner {
	latest := make(map[string]int64)
	for _, m := range msgs {
		if m.SenderID != userID && m.RecipientID != userID {
			continue
		}
		p := m.Partner(userID)
		if t, ok := latest[p]; !ok || m.Timestamp > t {
			latest[p] = m.Timestamp
		}
	}

	out := make([]ChatPartner, 0, len(latest))
	for p, t := range latest {
		out = append(out, ChatPartner{PartnerID: p, LastMessageTime: t})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastMessageTime != out[j].LastMessageTime {
			return out[i].LastMessageTime > out[j].LastMessageTime
		}
		return out[i].PartnerID < out[j].PartnerID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// RecentWindow picks the limit most recent of msgs and returns them oldest
// first, annotated for viewer. msgs must be in insertion order; equal
// timestamps keep that order in both sorts.
func RecentWindow(viewer string, msgs []*Message, limit int) []MessageView {
	window := make([]*Message, len(msgs))
	copy(window, msgs)

	// newest first; for equal timestamps the later insert is "newer"
	rank := make(map[*Message]int, len(window))
	for i, m := range window {
		rank[m] = i
	}
	sort.SliceStable(window, func(i, j int) bool {
		if window[i].Timestamp != window[j].Timestamp {
			return window[i].Timestamp > window[j].Timestamp
		}
		return rank[window[i]] > rank[window[j]]
	})
	if limit > 0 && len(window) > limit {
		window = window[:limit]
	}
	sort.SliceStable(window, func(i, j int) bool {
		if window[i].Timestamp != window[j].Timestamp {
			return window[i].Timestamp < window[j].Timestamp
		}
		return rank[window[i]] < rank[window[j]]
	})
	return Annotate(viewer, window)
}

// Annotate marks every message sent by viewer. Order is preserved.
func Annotate(viewer string, msgs []*Message) []MessageView {
	out := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MessageView{Message: *m, IsSent: m.SenderID == viewer})
	}
	return out
}

// Reverse flips msgs in place. Backends that page newest-first use it to
// hand back chronological order.
func Reverse(msgs []*Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
