package mcpserver

import "strings"

// outputLayoutTemplate describes the output tree for LLM consumers.
// AGGREGATE is replaced with the configured aggregate document name.
const outputLayoutTemplate = `# avlog Output Layout

A conversion run turns one capture of base64-encoded Teltonika AVL frames
into a directory tree of pretty-printed JSON documents.

## Tree

` + "```" + `
<root>/
  AGGREGATE                # every decoded frame, in capture order
  9/                       # hour bucket, unpadded 0-23
    09:30:00.000.json      # one record, named HH:MM:SS.mmm
  14/
    14:05:00.000.json
` + "```" + `

## Rules

1. **AGGREGATE** is a JSON array of frames: ` + "`" + `{"codec", "records", "crc"}` + "`" + `.
   Lines that failed to decode are absent; the remaining frames keep their order.
2. **Hour buckets** use the record timestamp's hour only. Records from different
   days that share hour, minute, second and millisecond land on the same file and
   the later one in capture order wins.
3. **Record files** hold one record: timestamp, priority, GPS fields, trigger
   event id, optional generation type (codec 16) and IO events.
4. **IO values** are tagged by width: ` + "`" + `{"U8": 1}` + "`" + `, ` + "`" + `{"U16": 2}` + "`" + `,
   ` + "`" + `{"U32": 3}` + "`" + `, ` + "`" + `{"U64": 4}` + "`" + `, or ` + "`" + `{"Variable": [1, 2]}` + "`" + `.
5. **Timestamps** inside documents are RFC 3339 strings. The fractional second
   has trailing zeros dropped, so ` + "`" + `12:34:56.000` + "`" + ` is written as
   ` + "`" + `"...T12:34:56Z"` + "`" + `. Wire frames carry milliseconds; serialized frames may
   carry up to nanoseconds. Record file names always use milliseconds, truncated.

## Tools

- ` + "`" + `list_hours` + "`" + ` then ` + "`" + `list_records` + "`" + ` to find a record file.
- ` + "`" + `read_record` + "`" + ` with the hour and file name to read it.
- ` + "`" + `read_frames` + "`" + ` returns AGGREGATE.
- ` + "`" + `query_records` + "`" + ` filters by time range when the record catalog is enabled.
`

// OutputLayout returns the layout description for a tree whose aggregate
// document is named aggregateName.
func OutputLayout(aggregateName string) string {
	return strings.ReplaceAll(outputLayoutTemplate, "AGGREGATE", aggregateName)
}
