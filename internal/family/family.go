// Package family maps product model names and manual filenames onto the
// product family used to scope manual retrieval.
package family

import "strings"

type Family string

const (
	VitaQuick Family = "vitaquick"
	Vitavit   Family = "vitavit"
	Adamant   Family = "adamant"
	General   Family = "general"
)

// Checked in order, first match wins.
var keywords = []Family{VitaQuick, Vitavit, Adamant}

// Infer returns the family whose keyword appears in text (case-insensitive),
// or General when none does. Ingestion tags manuals by filename and the live
// service tags customers by model name with this same function.
func Infer(text string) Family {
	lower := strings.ToLower(text)
	for _, f := range keywords {
		if strings.Contains(lower, string(f)) {
			return f
		}
	}
	return General
}

func (f Family) String() string { return string(f) }

// Display is the upper-cased label used in the assistant's instructions.
func (f Family) Display() string { return strings.ToUpper(string(f)) }
