/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package telegram

import "strings"

// MaxMessage stays under the 4096-char Bot API limit with room for escapes.
const MaxMessage = 3800

var escaper = strings.NewReplacer(
	`\`, `\\`, "_", `\_`, "*", `\*`, "[", `\[`, "]", `\]`, "(", `\(`, ")", `\)`,
	"~", `\~`, "`", "\\`", ">", `\>`, "#", `\#`, "+", `\+`, "-", `\-`,
	"=", `\=`, "|", `\|`, "{", `\{`, "}", `\}`, ".", `\.`, "!", `\!`,
)

// Escape quotes every MarkdownV2 special character.
func Escape(s string) string { return escaper.Replace(s) }

// Chunk splits text into chunks of up to max runes, breaking on line
// boundaries where possible and hard-splitting longer lines. A hard split
// never separates a backslash from the character it escapes.
func Chunk(s string, max int) []string {
	if max <= 0 {
		return []string{s}
	}
	var (
		chunks []string
		cur    strings.Builder
		curlen int
	)
	flush := func() {
		if curlen > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curlen = 0
		}
	}
	for _, ln := range strings.Split(s, "\n") {
		r := []rune(ln)
		if len(r) > max {
			flush()
			chunks = append(chunks, hardSplit(r, max)...)
			continue
		}
		extra := len(r)
		if curlen > 0 {
			extra++
		}
		if curlen+extra > max {
			flush()
			extra = len(r)
		}
		if curlen > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(ln)
		curlen += extra
	}
	flush()
	return chunks
}

func hardSplit(r []rune, max int) []string {
	var out []string
	for i := 0; i < len(r); {
		end := min(i+max, len(r))
		for j := i; j < end; j++ {
			if r[j] != '\\' {
				continue
			}
			if j+1 == end && end < len(r) {
				end = j
				break
			}
			j++
		}
		if end == i {
			end = i + 2
		}
		out = append(out, string(r[i:end]))
		i = end
	}
	return out
}
