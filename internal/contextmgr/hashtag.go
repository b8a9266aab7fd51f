package contextmgr

import (
	"fmt"
	"regexp"

	"github.com/clio-agent/clio/pkg/types"
)

// Resolver resolves a hashtag-injection token's underlying content. The
// concrete implementations (reading a file, walking a directory, grabbing
// the last shell command, ...) are individual-tool concerns out of scope
// per spec §1; this interface is the abstract boundary contextmgr depends
// on, supplied by the CLI/tool layer.
type Resolver interface {
	ResolveFile(path string) (string, error)
	ResolveFolder(path string) (string, error)
	ResolveCodebase() (string, error)
	ResolveSelection() (string, error)
	ResolveTerminalLastCommand() (string, error)
}

// hashtagPattern recognizes the five hashtag-injection tokens from spec
// §4.2: #file:PATH, #folder:PATH, #codebase, #selection,
// #terminalLastCommand.
var hashtagPattern = regexp.MustCompile(`#(file|folder):(\S+)|#(codebase|selection|terminalLastCommand)\b`)

// ResolveHashtags scans text for hashtag-injection tokens, resolves each
// through resolver, and returns the resulting ContextBlocks, truncating
// from the tail of each block as needed to stay within
// HashtagBudgetTokens total across the whole message.
func ResolveHashtags(text string, resolver Resolver, est *Estimator, providerModel string) ([]types.ContextBlock, error) {
	matches := hashtagPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil, nil
	}

	var blocks []types.ContextBlock
	remaining := HashtagBudgetTokens

	for _, m := range matches {
		if remaining <= 0 {
			break
		}

		var source, content string
		var err error
		switch {
		case m[1] == "file":
			source = "file:" + m[2]
			content, err = resolver.ResolveFile(m[2])
		case m[1] == "folder":
			source = "folder:" + m[2]
			content, err = resolver.ResolveFolder(m[2])
		case m[3] == "codebase":
			source = "codebase"
			content, err = resolver.ResolveCodebase()
		case m[3] == "selection":
			source = "selection"
			content, err = resolver.ResolveSelection()
		case m[3] == "terminalLastCommand":
			source = "terminalLastCommand"
			content, err = resolver.ResolveTerminalLastCommand()
		default:
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("contextmgr: resolve %s: %w", source, err)
		}

		tokens := est.EstimateTokens(providerModel, content)
		truncated := false
		if tokens > remaining {
			content = truncateToTokenBudget(content, remaining, est, providerModel)
			truncated = true
			tokens = remaining
		}
		remaining -= tokens

		blocks = append(blocks, types.ContextBlock{
			Source:    source,
			Content:   content,
			Truncated: truncated,
		})
	}

	return blocks, nil
}

// truncateToTokenBudget drops characters from the tail of content until its
// estimated token count fits within budget tokens, per spec §4.2
// ("per-block truncation from the tail").
func truncateToTokenBudget(content string, budget int, est *Estimator, providerModel string) string {
	if budget <= 0 {
		return ""
	}
	for len(content) > 0 && est.EstimateTokens(providerModel, content) > budget {
		cut := len(content) / 2
		if cut == len(content) {
			cut--
		}
		content = content[:cut]
	}
	return content
}
