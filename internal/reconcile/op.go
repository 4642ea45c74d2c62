// Package reconcile diffs the rendered view model of a session against the
// desired one and emits the patch operations the browser applies.
package reconcile

type Kind string

const (
	OpClass    Kind = "class"  // toggle class Name on the target
	OpAttr     Kind = "attr"   // set attribute Name to Value
	OpRmAttr   Kind = "rmattr" // remove attribute Name
	OpText     Kind = "text"   // replace text content
	OpWidth    Kind = "width"  // style.width
	OpReplace  Kind = "replace"
	OpInsert   Kind = "insert" // insertAdjacentHTML at Position
	OpRemove   Kind = "remove"
	OpWrap     Kind = "wrap"   // wrap the target and the Value sibling in a div with class Name
	OpUnwrap   Kind = "unwrap" // hoist the target's children and drop it
	OpFlash    Kind = "flash"  // add class Name, drop it after Millis
	OpRebuild  Kind = "rebuild"
	OpAnnounce Kind = "announce" // set text, clear it after Millis
)

const (
	AfterEnd  = "afterend"
	BeforeEnd = "beforeend"
)

const (
	FlashMillis    = 1000
	AnnounceMillis = 3000
)

// Op is a single DOM patch. Group and Card scope the target: the client
// resolves the group section, then the card within it, then Target inside
// that element. An empty Target addresses the scope element itself; with no
// scope Target is resolved against the document.
type Op struct {
	Kind     Kind   `json:"op"`
	Group    string `json:"group,omitempty"`
	Card     string `json:"card,omitempty"`
	Target   string `json:"target,omitempty"`
	Name     string `json:"name,omitempty"`
	Value    string `json:"value,omitempty"`
	HTML     string `json:"html,omitempty"`
	Position string `json:"position,omitempty"`
	On       bool   `json:"on,omitempty"`
	Millis   int    `json:"ms,omitempty"`
}

// Count tallies ops by kind.
func Count(ops []Op) map[Kind]int {
	out := make(map[Kind]int)
	for _, op := range ops {
		out[op.Kind]++
	}
	return out
}

func scope(ops []Op, group, card string) []Op {
	for i := range ops {
		if group != "" {
			ops[i].Group = group
		}
		if card != "" {
			ops[i].Card = card
		}
	}
	return ops
}
