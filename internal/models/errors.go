package models

import "errors"

// ErrConfiguration marks a catalog that cannot be priced or reserved safely,
// such as a bundle without bundle options. It is never a user error.
var ErrConfiguration = errors.New("catalog configuration fault")
