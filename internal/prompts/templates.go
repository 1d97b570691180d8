package prompts

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sammcj/mcp-pdf-reader/internal/docerr"
	"github.com/sammcj/mcp-pdf-reader/internal/extract"
)

// SummarizePrompt implements summarize-pdf
type SummarizePrompt struct {
	text *extract.Service
}

// Definition returns the prompt's definition for MCP registration
func (p *SummarizePrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("summarize-pdf",
		mcp.WithPromptDescription("Create a summary of an open PDF"),
		pdfIDArgument(),
		mcp.WithArgument("style",
			mcp.ArgumentDescription("Style of the summary (brief/detailed)"),
		),
	)
}

// Get renders a summary request in the chosen style over the full text of the document
func (p *SummarizePrompt) Get(ctx context.Context, args map[string]string) (*mcp.GetPromptResult, error) {
	const op = "summarize-pdf"

	id, err := requiredArg(op, args, "pdf_id")
	if err != nil {
		return nil, err
	}

	style := strings.ToLower(strings.TrimSpace(args["style"]))
	switch style {
	case "":
		style = "brief"
	case "brief", "detailed":
	default:
		return nil, docerr.Argument(op, "style", "style must be brief or detailed, got %q", args["style"])
	}

	result, metadata, err := fullText(ctx, p.text, id, extract.All())
	if err != nil {
		return nil, err
	}

	detail := ""
	if style == "detailed" {
		detail = " Give extensive details."
	}

	name := result.Session.Name()
	text := fmt.Sprintf("# PDF Analysis Task\n\n"+
		"You are an expert document analyst specialising in PDF analysis and summarisation. "+
		"Your task is to provide a clear, accurate, and well-structured %s summary of this PDF document titled '%s' (%d pages).%s"+
		"%s\n\n"+
		"Document Content:\n%s\n\n"+
		"Based on the content above, please provide:\n"+
		"1. A concise overview of what this document is about\n"+
		"2. The main points or arguments presented\n"+
		"3. Any key findings, conclusions, or recommendations\n"+
		"4. The structure and organisation of the document",
		style, name, result.PageCount, detail, metadataBlock(metadata), result.Text)

	return userMessage("Summarize PDF: "+name, text), nil
}

// ExtractTextPrompt implements extract-text-from-pdf
type ExtractTextPrompt struct {
	text *extract.Service
}

// Definition returns the prompt's definition for MCP registration
func (p *ExtractTextPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("extract-text-from-pdf",
		mcp.WithPromptDescription("Extract text from a specific page or range of an open PDF"),
		pdfIDArgument(),
		mcp.WithArgument("page",
			mcp.ArgumentDescription("Page number to extract (starts at 0)"),
		),
		mcp.WithArgument("start_page",
			mcp.ArgumentDescription("Start page for range extraction (inclusive, starts at 0)"),
		),
		mcp.WithArgument("end_page",
			mcp.ArgumentDescription("End page for range extraction (inclusive)"),
		),
	)
}

// Get renders the text of the requested page or page range
func (p *ExtractTextPrompt) Get(ctx context.Context, args map[string]string) (*mcp.GetPromptResult, error) {
	const op = "extract-text-from-pdf"

	id, err := requiredArg(op, args, "pdf_id")
	if err != nil {
		return nil, err
	}

	page, err := optionalIntArg(op, args, "page")
	if err != nil {
		return nil, err
	}
	if page != nil {
		return p.single(ctx, id, *page)
	}

	start, err := optionalIntArg(op, args, "start_page")
	if err != nil {
		return nil, err
	}
	end, err := optionalIntArg(op, args, "end_page")
	if err != nil {
		return nil, err
	}

	result, metadata, err := fullText(ctx, p.text, id, extract.Range(start, end))
	if err != nil {
		return nil, err
	}

	name := result.Session.Name()
	pages := result.Description()
	text := fmt.Sprintf("# PDF Text Extraction\n\n"+
		"Below is the text extracted from %s (of %d) of the PDF document titled '%s'."+
		"%s\n\n"+
		"```\n%s\n```\n\n"+
		"Please work with this text to answer any questions, summarise, or analyse as needed.",
		pages, result.PageCount, name, metadataBlock(metadata), result.Text)

	return userMessage(fmt.Sprintf("Text from %s of %s", pages, name), text), nil
}

func (p *ExtractTextPrompt) single(ctx context.Context, id string, page int) (*mcp.GetPromptResult, error) {
	result, metadata, err := fullText(ctx, p.text, id, extract.Single(page))
	if err != nil {
		return nil, err
	}

	pageText := ""
	if len(result.Pages) == 1 {
		pageText = result.Pages[0].Text
	}
	if pageText == "" {
		pageText = fmt.Sprintf("No text found on page %d", page)
	}

	name := result.Session.Name()
	text := fmt.Sprintf("# PDF Text Extraction\n\n"+
		"Below is the text extracted from page %d (of %d) of the PDF document titled '%s'."+
		"%s\n\n"+
		"```\n%s\n```\n\n"+
		"Please work with this text to answer any questions, summarise, or analyse as needed.",
		page+1, result.PageCount, name, metadataBlock(metadata), pageText)

	return userMessage(fmt.Sprintf("Text from page %d of %s", page+1, name), text), nil
}

// AnalyzePrompt implements analyze-pdf
type AnalyzePrompt struct {
	text *extract.Service
}

// Definition returns the prompt's definition for MCP registration
func (p *AnalyzePrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("analyze-pdf",
		mcp.WithPromptDescription("Analyse an open PDF and answer a question about its content"),
		pdfIDArgument(),
		mcp.WithArgument("question",
			mcp.ArgumentDescription("The specific question to answer about the PDF content"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("page_range",
			mcp.ArgumentDescription("Optional page range to focus on, 0-based (format: '0-5' or '3')"),
		),
	)
}

// Get renders the question together with the text of the selected pages
func (p *AnalyzePrompt) Get(ctx context.Context, args map[string]string) (*mcp.GetPromptResult, error) {
	const op = "analyze-pdf"

	id, err := requiredArg(op, args, "pdf_id")
	if err != nil {
		return nil, err
	}
	question, err := requiredArg(op, args, "question")
	if err != nil {
		return nil, err
	}
	pages, err := extract.ParseRange("page_range", args["page_range"])
	if err != nil {
		return nil, err
	}

	result, metadata, err := fullText(ctx, p.text, id, pages)
	if err != nil {
		return nil, err
	}

	name := result.Session.Name()
	text := fmt.Sprintf("# PDF Analysis Request\n\n"+
		"I need your help analysing the following PDF document titled '%s' (%d total pages).\n"+
		"I'm specifically looking at %s."+
		"%s\n\n"+
		"## Question\n%s\n\n"+
		"## Document Content\n```\n%s\n```\n\n"+
		"Please analyse the document content carefully and provide a thorough and accurate answer to my question, "+
		"citing specific parts of the text where relevant.",
		name, result.PageCount, result.Description(), metadataBlock(metadata), question, result.Text)

	return userMessage(fmt.Sprintf("Analysis of %s (%s)", name, question), text), nil
}
