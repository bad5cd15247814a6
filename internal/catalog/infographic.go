package catalog

import "github.com/osvaldoandrade/dossier/pkg/domain"

const jsonOnly = `Return exactly one JSON object with the keys listed below and nothing else: no markdown, no comments,
no trailing text. Word ranges count words, not characters. Use "Not Found" for any value the sources do not support.`

var infographicSections = []definition{
	{
		name:  "product",
		shape: domain.Structured("problem", "problem_category", "current_alternatives", "why_now", "product_details", "replacement_for"),
		directive: `Extract a product overview for {{.Subject}} from the knowledge base only.
Describe the product the company built, not the company history.
` + jsonOnly + `
{
  "problem": "<40-50 words>",
  "problem_category": "<20-25 words>",
  "current_alternatives": "<30-40 words>",
  "why_now": "<20-25 words>",
  "product_details": "<50-70 words>",
  "replacement_for": "<15-20 words>"
}
Re-count the words of every field before answering.`,
	},
	{
		name:  "financial_metric",
		shape: domain.Structured("overview", "growth_rate", "capital_efficiency", "valuation", "analysis", "profitability_margin"),
		directive: `Produce a financial metrics summary for {{.Subject}}.
Use the knowledge base first and web search for public funding or valuation data.
` + jsonOnly + `
{
  "overview": "<40-50 words on financial standing and funding history>",
  "growth_rate": "<20-30 words on revenue or user growth>",
  "capital_efficiency": "<25-35 words on burn multiple or return on capital>",
  "valuation": "<20-30 words on the latest or estimated valuation>",
  "analysis": "<40-60 words on strengths, weaknesses, opportunities and risks>",
  "profitability_margin": "<25-35 words on margins or breakeven>"
}`,
	},
}
