// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package fetch

import (
	"html"
	"regexp"
	"strings"
)

// Boilerplate containers whose text never belongs in a policy document.
var skipBlocks = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<script\b.*?</script>`),
	regexp.MustCompile(`(?is)<style\b.*?</style>`),
	regexp.MustCompile(`(?is)<header\b.*?</header>`),
	regexp.MustCompile(`(?is)<footer\b.*?</footer>`),
	regexp.MustCompile(`(?is)<nav\b.*?</nav>`),
	regexp.MustCompile(`(?is)<!--.*?-->`),
}

var (
	blockBreak = regexp.MustCompile(`(?i)</?(p|div|br|li|h[1-6]|tr|section|article)[^>]*>`)
	anyTag     = regexp.MustCompile(`(?s)<[^>]*>`)
	blankRuns  = regexp.MustCompile(`\n{3,}`)
)

// StripHTML reduces a page to readable text: scripts, styles, and
// navigation chrome are dropped, block boundaries become newlines,
// remaining tags are removed, and character references are decoded.
// Non-breaking spaces from decoded references collapse with the rest of
// the whitespace in the per-line Fields pass.
func StripHTML(page string) string {
	for _, re := range skipBlocks {
		page = re.ReplaceAllString(page, " ")
	}
	page = blockBreak.ReplaceAllString(page, "\n")
	page = anyTag.ReplaceAllString(page, " ")
	page = html.UnescapeString(page)

	lines := strings.Split(page, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	page = strings.Join(lines, "\n")
	page = blankRuns.ReplaceAllString(page, "\n\n")
	return strings.TrimSpace(page)
}
