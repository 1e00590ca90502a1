package extract

import (
	"fmt"
	"strings"
)

func initialPrompt(entityTypes []string, chunkText string) string {
	var b strings.Builder
	b.WriteString("Extract all entities and relationships from the text below.\n")
	b.WriteString("Recognized entity types: ")
	b.WriteString(strings.Join(entityTypes, ", "))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Return each record on its own line, records separated by %q.\n", recordSep)
	fmt.Fprintf(&b, "Entity record format: (entity%sNAME%sTYPE%sdescription)\n", fieldSep, fieldSep, fieldSep)
	fmt.Fprintf(&b, "Relationship record format: (relationship%sSOURCE%sTARGET%sdescription%sweight)\n\n", fieldSep, fieldSep, fieldSep, fieldSep)
	b.WriteString("Text:\n")
	b.WriteString(chunkText)
	return b.String()
}

func continuationPrompt() string {
	return "The previous response was cut off. Continue emitting records exactly where you left off, in the same format. Do not repeat earlier records."
}

func gleaningPrompt() string {
	return "Some entities or relationships may have been missed. Emit any additional records in the same format, or reply with nothing if there are none."
}

func decisionPrompt() string {
	return "Are there any more entities or relationships to extract? Answer only YES or NO."
}

func isNegativeDecision(response string) bool {
	r := strings.ToUpper(strings.TrimSpace(response))
	return strings.HasPrefix(r, "NO")
}
