package query

import (
	"context"
	"fmt"
	"strings"
)

// runNaive implements spec §4.5.3: embed the query, pull the nearest
// chunks straight from the chunks vector namespace, truncate to budget,
// and answer directly with no graph structure involved. Fails with a
// mode-disabled error when the chunks vector store isn't configured.
func (p *Planner) runNaive(ctx context.Context, req Request) (Response, error) {
	if p.chunkVec == nil {
		return Response{}, modeDisabledErr("naive query mode requires a chunks vector store")
	}

	topK := p.cfg.TopKChunks
	if topK <= 0 {
		topK = 10
	}
	qvecs, err := p.embedder.Embed(ctx, []string{req.Question})
	if err != nil {
		return Response{}, err
	}
	matches, err := p.chunkVec.Search(ctx, qvecs[0], topK, nil)
	if err != nil {
		return Response{}, err
	}

	budget := p.cfg.NaiveTokenBudget
	if budget <= 0 {
		budget = 4000
	}
	var b strings.Builder
	used := 0
	for _, m := range matches {
		text := p.fetchChunkText(ctx, m.ID)
		if text == "" {
			continue
		}
		t := p.tokenCount(text)
		if used+t > budget && used > 0 {
			break
		}
		b.WriteString(text)
		b.WriteString("\n\n")
		used += t
	}
	assembled := b.String()

	prompt := naivePrompt(req.Question, assembled)
	answer, err := p.complete(ctx, prompt, req.OnChunk)
	if err != nil {
		return Response{}, err
	}
	return Response{Answer: answer, Context: assembled}, nil
}

func naivePrompt(question, context string) string {
	if context == "" {
		return fmt.Sprintf("Answer the question directly; no matching source text was found.\n\nQuestion: %s", question)
	}
	return fmt.Sprintf("Answer the question using only the source excerpts below.\n\n%s\nQuestion: %s", context, question)
}
