package types

// Event is the flattened form of a module event: a dotted type such as
// "lending.borrow" plus string attributes.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
