package steploop

import (
	"github.com/martinemde/stepagent/unifiedllm"
)

// EntryKind classifies a transcript entry.
type EntryKind string

const (
	EntrySystem      EntryKind = "system"
	EntryUser        EntryKind = "user"
	EntryStep        EntryKind = "step"
	EntryObservation EntryKind = "observation"
	EntryCorrection  EntryKind = "correction"
	EntrySteering    EntryKind = "steering"
)

// Entry is one transcript record. Step is set for step and observation
// entries; Text always holds the exact message text sent to the provider.
type Entry struct {
	Kind EntryKind `json:"kind"`
	Text string    `json:"text"`
	Step *Step     `json:"step,omitempty"`
}

// Transcript is the append-only conversation of a single run. The first
// entry is the system instruction and the second is the user's message.
type Transcript struct {
	entries []Entry
}

// NewTranscript starts a transcript with the system instruction and the
// user's initial message.
func NewTranscript(systemInstruction, userMessage string) *Transcript {
	return &Transcript{entries: []Entry{
		{Kind: EntrySystem, Text: systemInstruction},
		{Kind: EntryUser, Text: userMessage},
	}}
}

// AppendStep records a model-produced step in canonical form.
func (t *Transcript) AppendStep(s Step) {
	t.entries = append(t.entries, Entry{Kind: EntryStep, Text: s.Encode(), Step: &s})
}

// AppendObservation records the result of a tool dispatch.
func (t *Transcript) AppendObservation(s Step) {
	t.entries = append(t.entries, Entry{Kind: EntryObservation, Text: s.Encode(), Step: &s})
}

// AppendCorrection records the instruction sent after an unparseable reply.
func (t *Transcript) AppendCorrection(text string) {
	t.entries = append(t.entries, Entry{Kind: EntryCorrection, Text: text})
}

// AppendSteering records loop-level guidance such as a loop warning.
func (t *Transcript) AppendSteering(text string) {
	t.entries = append(t.entries, Entry{Kind: EntrySteering, Text: text})
}

// Len returns the number of entries.
func (t *Transcript) Len() int { return len(t.entries) }

// Entries returns a copy of the entries.
func (t *Transcript) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Messages renders the transcript as provider messages. Observations are
// attributed to observationRole, which defaults to developer.
func (t *Transcript) Messages(observationRole unifiedllm.Role) []unifiedllm.Message {
	if observationRole == "" {
		observationRole = unifiedllm.RoleDeveloper
	}
	msgs := make([]unifiedllm.Message, 0, len(t.entries))
	for _, e := range t.entries {
		var role unifiedllm.Role
		switch e.Kind {
		case EntrySystem, EntryCorrection, EntrySteering:
			role = unifiedllm.RoleSystem
		case EntryUser:
			role = unifiedllm.RoleUser
		case EntryStep:
			role = unifiedllm.RoleAssistant
		case EntryObservation:
			role = observationRole
		default:
			continue
		}
		msgs = append(msgs, unifiedllm.TextMessage(role, e.Text))
	}
	return msgs
}
