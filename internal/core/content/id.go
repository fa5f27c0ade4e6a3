package content

import "fmt"

// GenerateDocumentID generates a document ID from the current max number.
// The format is DOC-XXX where XXX is a zero-padded 3-digit number.
func GenerateDocumentID(currentMax int) string {
	return fmt.Sprintf("DOC-%03d", currentMax+1)
}
