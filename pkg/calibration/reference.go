package calibration

import (
	"sort"

	pkgerrors "github.com/pkg/errors"
)

// ReferenceObject is something of known width the user holds against the
// screen while resizing the calibration rectangle.
type ReferenceObject struct {
	Key     string  `json:"key"`
	Name    string  `json:"name"`
	WidthMm float64 `json:"widthMm"`
}

const (
	ObjectCreditCard = "credit-card"
	ObjectA4Paper    = "a4-paper"
	ObjectDollarBill = "dollar-bill"
	ObjectCustom     = "custom"
)

// DefaultCustomWidthMm is the width of the custom object until the user
// enters one.
const DefaultCustomWidthMm = 100.0

var referenceObjects = map[string]ReferenceObject{
	ObjectCreditCard: {Key: ObjectCreditCard, Name: "Credit Card", WidthMm: 85.6},
	ObjectA4Paper:    {Key: ObjectA4Paper, Name: "A4 Paper", WidthMm: 210},
	ObjectDollarBill: {Key: ObjectDollarBill, Name: "Dollar Bill", WidthMm: 155.96},
	ObjectCustom:     {Key: ObjectCustom, Name: "Custom", WidthMm: DefaultCustomWidthMm},
}

// LookupReferenceObject returns the object registered under key.
func LookupReferenceObject(key string) (ReferenceObject, error) {
	o, ok := referenceObjects[key]
	if !ok {
		return ReferenceObject{}, pkgerrors.Wrapf(ErrInvalidCalibration, "unknown reference object %q", key)
	}
	return o, nil
}

// ReferenceObjects lists the known objects sorted by key.
func ReferenceObjects() []ReferenceObject {
	out := make([]ReferenceObject, 0, len(referenceObjects))
	for _, o := range referenceObjects {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
