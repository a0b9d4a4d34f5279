package store

// Reader is the read half of a state registry.
type Reader interface {
	GetState(typ string) Payload
	GetAllState() map[string]Payload
}

// Writer is the write half of a state registry.
type Writer interface {
	SetState(typ string, payload Payload)
	ClearState(typ string)
}

// CopyAll pushes every state held by src into dst. Used to hand state
// over between stores, e.g. when a host rebuilds its store around a
// restored snapshot or drains one store into another during tests.
func CopyAll(src Reader, dst Writer) {
	for typ, payload := range src.GetAllState() {
		dst.SetState(typ, payload)
	}
}
