package mcpserver

import (
	"fmt"
	"strings"

	"github.com/starford/photoattr/internal/attrs"
)

const contractTemplate = `# photoattr Sidecar Contract

Every image in the catalog may have one JSON sidecar holding its attributes.

## Location

The sidecar of ` + "`dir/name.ext`" + ` is ` + "`dir/name.json`" + `: same folder, same
basename, last extension replaced by ` + "`.json`" + `. Two images that differ only in
extension share one sidecar.

## Content

A single flat JSON object. All values are strings.

` + "```" + `json
{
  "image": "img1",
  "year": "1985",
  "region": "northeast",
  "comments": ""
}
` + "```" + `

## Keys

%s

## Rules

1. **` + "`image`" + ` must equal the image basename without extension.** A sidecar
   whose ` + "`image`" + ` is missing or different is ignored and reads as empty. The
   server always sets it; never send it in an update.
2. **Updates are merges.** Only the keys you send change. Keys you omit keep
   their stored value, including keys outside the list above.
3. **Empty string means unset.** Send ` + "`\"\"`" + ` to clear a value.
4. **Reuse existing spellings.** Check ` + "`get_attribute_values`" + ` before
   inventing a new region, line, or person name.
5. **Concurrency.** Pass the ` + "`checksum`" + ` from ` + "`read_attributes`" + ` as
   ` + "`if_match`" + ` to avoid overwriting a concurrent edit.
`

// SidecarContract describes the sidecar format that LLM consumers should
// follow when updating attributes.
func SidecarContract() string {
	var b strings.Builder
	for _, k := range attrs.Keys {
		fmt.Fprintf(&b, "- `%s`\n", k)
	}
	return fmt.Sprintf(contractTemplate, strings.TrimRight(b.String(), "\n"))
}
