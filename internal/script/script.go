package script

// Character is a member of the cast.
type Character string

const (
	Zundamon Character = "zundamon"
	Metan    Character = "metan"
	Tsumugi  Character = "tsumugi"
)

// Cast lists the characters in display order.
var Cast = []Character{Zundamon, Metan, Tsumugi}

// Valid reports whether c is in the cast.
func (c Character) Valid() bool {
	for _, m := range Cast {
		if c == m {
			return true
		}
	}
	return false
}

// Counterpart returns the partner shown next to c in duo mode.
func Counterpart(c Character) Character {
	if c == Zundamon {
		return Metan
	}
	return Zundamon
}

// Expression is a character's facial expression.
type Expression string

const (
	ExpressionNormal    Expression = "normal"
	ExpressionHappy     Expression = "happy"
	ExpressionAngry     Expression = "angry"
	ExpressionSad       Expression = "sad"
	ExpressionSurprised Expression = "surprised"
)

// ValidExpressions lists every expression the renderer accepts.
var ValidExpressions = []Expression{
	ExpressionNormal, ExpressionHappy, ExpressionAngry, ExpressionSad, ExpressionSurprised,
}

// Valid reports whether e is a known expression.
func (e Expression) Valid() bool {
	for _, v := range ValidExpressions {
		if e == v {
			return true
		}
	}
	return false
}

// ModeDuo is the only conversation mode the renderer accepts.
const ModeDuo = "duo"

// Segment is one line of dialogue.
type Segment struct {
	Speaker              Character                `json:"speaker"`
	Text                 string                   `json:"text"`
	VoiceText            string                   `json:"text_for_voicevox"`
	Expression           Expression               `json:"expression"`
	VisibleCharacters    []Character              `json:"visible_characters"`
	CharacterExpressions map[Character]Expression `json:"character_expressions"`
}

// Section groups segments under one background.
type Section struct {
	Name          string    `json:"section_name"`
	BackgroundRef string    `json:"scene_background"`
	Segments      []Segment `json:"segments"`
}

// Script is the document the renderer consumes.
type Script struct {
	Title             string    `json:"title"`
	EstimatedDuration string    `json:"estimated_duration,omitempty"`
	Theme             string    `json:"theme,omitempty"`
	Mode              string    `json:"mode,omitempty"`
	Sections          []Section `json:"sections"`
}

// Conversation is a flattened segment carrying its section background.
type Conversation struct {
	Speaker              Character                `json:"speaker"`
	Text                 string                   `json:"text"`
	VoiceText            string                   `json:"text_for_voicevox"`
	Expression           Expression               `json:"expression"`
	Background           string                   `json:"background"`
	VisibleCharacters    []Character              `json:"visible_characters"`
	CharacterExpressions map[Character]Expression `json:"character_expressions"`
}

func (seg Segment) clone() Segment {
	out := seg
	if seg.VisibleCharacters != nil {
		out.VisibleCharacters = append([]Character(nil), seg.VisibleCharacters...)
	}
	if seg.CharacterExpressions != nil {
		out.CharacterExpressions = make(map[Character]Expression, len(seg.CharacterExpressions))
		for k, v := range seg.CharacterExpressions {
			out.CharacterExpressions[k] = v
		}
	}
	return out
}

// Clone returns a deep copy of s. A nil script clones to nil.
func (s *Script) Clone() *Script {
	if s == nil {
		return nil
	}
	out := *s
	out.Sections = make([]Section, len(s.Sections))
	for i, sec := range s.Sections {
		out.Sections[i] = sec
		out.Sections[i].Segments = make([]Segment, len(sec.Segments))
		for j, seg := range sec.Segments {
			out.Sections[i].Segments[j] = seg.clone()
		}
	}
	return &out
}

// Flatten concatenates every segment in section order, each tagged with its
// section's background.
func (s *Script) Flatten() []Conversation {
	if s == nil {
		return nil
	}
	out := make([]Conversation, 0, s.Count())
	for _, sec := range s.Sections {
		for _, seg := range sec.Segments {
			seg = seg.clone()
			out = append(out, Conversation{
				Speaker:              seg.Speaker,
				Text:                 seg.Text,
				VoiceText:            seg.VoiceText,
				Expression:           seg.Expression,
				Background:           sec.BackgroundRef,
				VisibleCharacters:    seg.VisibleCharacters,
				CharacterExpressions: seg.CharacterExpressions,
			})
		}
	}
	return out
}

// Count returns the total number of segments.
func (s *Script) Count() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, sec := range s.Sections {
		n += len(sec.Segments)
	}
	return n
}
