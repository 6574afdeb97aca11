package model

import "github.com/rotisserie/eris"

// ErrInvalidCandidate is returned when a candidate lacks an address or has no
// declared fields. It is fatal for that candidate only.
var ErrInvalidCandidate = eris.New("invalid candidate")
