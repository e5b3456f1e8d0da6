package script

// Patch is a partial segment edit. Nil fields are left untouched; values
// outside the cast or expression sets are ignored.
type Patch struct {
	Speaker    *Character  `json:"speaker,omitempty"`
	Text       *string     `json:"text,omitempty"`
	VoiceText  *string     `json:"text_for_voicevox,omitempty"`
	Expression *Expression `json:"expression,omitempty"`
}

// NewSegment returns the segment inserted by InsertSegmentAfter.
func NewSegment() Segment {
	return Normalize(Segment{Speaker: Zundamon, Expression: ExpressionNormal})
}

// Apply returns prior with p applied and the derived fields re-derived.
// Setting text without a voice text resets the voice text to the new text.
func Apply(prior Segment, p Patch) Segment {
	next := prior.clone()
	if p.Speaker != nil && p.Speaker.Valid() {
		next.Speaker = *p.Speaker
	}
	if p.Text != nil {
		next.Text = *p.Text
	}
	if p.Expression != nil && p.Expression.Valid() {
		next.Expression = *p.Expression
	}
	switch {
	case p.VoiceText != nil:
		next.VoiceText = *p.VoiceText
	case p.Text != nil:
		next.VoiceText = next.Text
	}
	return Normalize(next)
}

// Normalize enforces the segment invariants on a copy of seg:
// voice text falls back to text, the duo pair is visible, the speaker's
// expression is mirrored and every other visible member keeps its previous
// expression or normal.
func Normalize(seg Segment) Segment {
	out := seg.clone()
	if !out.Speaker.Valid() {
		out.Speaker = Zundamon
	}
	if !out.Expression.Valid() {
		out.Expression = ExpressionNormal
	}
	if out.VoiceText == "" {
		out.VoiceText = out.Text
	}

	out.VisibleCharacters = duoPair(out.Speaker)
	exprs := make(map[Character]Expression, len(out.VisibleCharacters))
	for _, c := range out.VisibleCharacters {
		if c == out.Speaker {
			exprs[c] = out.Expression
			continue
		}
		if e, ok := seg.CharacterExpressions[c]; ok && e.Valid() {
			exprs[c] = e
		} else {
			exprs[c] = ExpressionNormal
		}
	}
	out.CharacterExpressions = exprs
	return out
}

func duoPair(speaker Character) []Character {
	partner := Counterpart(speaker)
	pair := make([]Character, 0, 2)
	for _, c := range Cast {
		if c == speaker || c == partner {
			pair = append(pair, c)
		}
	}
	return pair
}

// Normalized returns a copy of s in which every segment is normalized and
// every empty section holds a default segment.
func Normalized(s *Script) *Script {
	out := s.Clone()
	if out == nil {
		return nil
	}
	for i := range out.Sections {
		sec := &out.Sections[i]
		if len(sec.Segments) == 0 {
			sec.Segments = []Segment{NewSegment()}
			continue
		}
		for j := range sec.Segments {
			sec.Segments[j] = Normalize(sec.Segments[j])
		}
	}
	return out
}

func segmentAt(s *Script, sectionIdx, segmentIdx int) bool {
	if s == nil || sectionIdx < 0 || sectionIdx >= len(s.Sections) {
		return false
	}
	return segmentIdx >= 0 && segmentIdx < len(s.Sections[sectionIdx].Segments)
}

// UpdateSegment returns a new script with the addressed segment patched.
// Out-of-range indices return s unchanged.
func UpdateSegment(s *Script, sectionIdx, segmentIdx int, p Patch) *Script {
	if !segmentAt(s, sectionIdx, segmentIdx) {
		return s
	}
	out := s.Clone()
	segs := out.Sections[sectionIdx].Segments
	segs[segmentIdx] = Apply(segs[segmentIdx], p)
	return out
}

// InsertSegmentAfter returns a new script with a default segment placed after
// afterIdx, or appended when afterIdx is past the end.
func InsertSegmentAfter(s *Script, sectionIdx, afterIdx int) *Script {
	if s == nil || sectionIdx < 0 || sectionIdx >= len(s.Sections) || afterIdx < 0 {
		return s
	}
	out := s.Clone()
	sec := &out.Sections[sectionIdx]
	at := afterIdx + 1
	if at > len(sec.Segments) {
		at = len(sec.Segments)
	}
	segs := make([]Segment, 0, len(sec.Segments)+1)
	segs = append(segs, sec.Segments[:at]...)
	segs = append(segs, NewSegment())
	segs = append(segs, sec.Segments[at:]...)
	sec.Segments = segs
	return out
}

// DeleteSegment returns a new script without the addressed segment. The last
// segment of a section is never removed.
func DeleteSegment(s *Script, sectionIdx, segmentIdx int) *Script {
	if !segmentAt(s, sectionIdx, segmentIdx) || len(s.Sections[sectionIdx].Segments) <= 1 {
		return s
	}
	out := s.Clone()
	sec := &out.Sections[sectionIdx]
	sec.Segments = append(sec.Segments[:segmentIdx], sec.Segments[segmentIdx+1:]...)
	return out
}
