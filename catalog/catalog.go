// Package catalog provides a pluggable, localizable implementation of
// record.MessageFormatter, replacing the source implementation's global
// localized message catalog with an explicit value callers construct
// and pass to evaluators (see SPEC_FULL.md §4.7 and §9).
package catalog

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	keyNotUnique = "dwcacore.notUnique"
	keyNotFound  = "dwcacore.notFound"
)

func init() {
	message.SetString(language.English, keyNotUnique, "%[1]s is not unique for %[2]s")
	message.SetString(language.English, keyNotFound, "%[1]s was not found in target")
}

// Catalog formats finding messages for a single language tag.
type Catalog struct {
	printer *message.Printer
}

// New builds a Catalog for the given language tag. Unregistered tags
// fall back to message's default catalog behavior (the message key
// itself, formatted with fmt-style verbs).
func New(tag language.Tag) *Catalog {
	return &Catalog{printer: message.NewPrinter(tag)}
}

// Default returns the English-language Catalog used when an evaluator
// is not configured with one explicitly.
func Default() *Catalog {
	return New(language.English)
}

// NotUnique renders the message for a FieldUniqueness finding.
func (c *Catalog) NotUnique(value, termName string) string {
	return c.printer.Sprintf(keyNotUnique, value, termName)
}

// NotFound renders the message for a FieldReferentialIntegrity finding.
func (c *Catalog) NotFound(value string) string {
	return c.printer.Sprintf(keyNotFound, value)
}
