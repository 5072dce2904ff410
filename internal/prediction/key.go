package prediction

import "fmt"

// Key correlates a client-predicted action with its eventual authoritative
// confirmation.
//
// The zero Key is invalid and means "not predicted".
type Key struct {
	ID   int32 `json:"id"`
	Base int32 `json:"base,omitempty"` // key this one depends on

	// ServerInitiated keys are generated by the authority itself.
	ServerInitiated bool `json:"server_initiated,omitempty"`
	// Received is set on keys that arrived over the network.
	Received bool `json:"received,omitempty"`
}

// IsValid reports whether k identifies a prediction.
func (k Key) IsValid() bool {
	return k.ID > 0
}

// IsLocalClientKey reports whether k was generated by a non-authoritative
// peer and has not been acknowledged by the authority yet.
func (k Key) IsLocalClientKey() bool {
	return k.ID > 0 && !k.ServerInitiated && !k.Received
}

// IsValidForMorePrediction reports whether further effects may be predicted
// under this key.
func (k Key) IsValidForMorePrediction() bool {
	return k.IsLocalClientKey()
}

// WasReceived reports whether k came back from the network.
func (k Key) WasReceived() bool {
	return k.ID > 0 && k.Received
}

// WasLocallyGenerated reports whether k was created on this peer.
func (k Key) WasLocallyGenerated() bool {
	return k.ID > 0 && !k.Received
}

// Matches reports whether both keys identify the same prediction.
func (k Key) Matches(other Key) bool {
	return k.IsValid() && k.ID == other.ID
}

// AsReceived returns the copy a remote peer observes after replication.
func (k Key) AsReceived() Key {
	if !k.IsValid() {
		return Key{}
	}
	k.Received = true
	return k
}

func (k Key) String() string {
	switch {
	case !k.IsValid():
		return "[none]"
	case k.ServerInitiated:
		return fmt.Sprintf("[%d/%d server]", k.ID, k.Base)
	case k.Received:
		return fmt.Sprintf("[%d/%d received]", k.ID, k.Base)
	default:
		return fmt.Sprintf("[%d/%d]", k.ID, k.Base)
	}
}

// Generator hands out increasing key IDs for one peer.
type Generator struct {
	last            int32
	serverInitiated bool
}

// NewGenerator creates a generator. Authority generators mark keys
// ServerInitiated.
func NewGenerator(authority bool) *Generator {
	return &Generator{serverInitiated: authority}
}

// NewKey returns a fresh key.
func (g *Generator) NewKey() Key {
	g.last++
	if g.last <= 0 {
		g.last = 1
	}
	return Key{ID: g.last, ServerInitiated: g.serverInitiated}
}

// NewDependentKey returns a fresh key chained to base.
func (g *Generator) NewDependentKey(base Key) Key {
	k := g.NewKey()
	if base.IsValid() {
		k.Base = base.ID
	}
	return k
}
