package catalog

import "github.com/osvaldoandrade/dossier/pkg/domain"

const groundingRules = `Primary source: the knowledge base lookup for everything specific to {{.Subject}}.
Secondary source: web search, only from authoritative outlets, only when the knowledge base has nothing.
Never invent figures or names. Leave a field out rather than guess.`

var reportSections = []definition{
	{
		name:  "company_overview",
		shape: domain.FreeText(),
		directive: `Write a company overview of {{.Subject}} using only knowledge base material.
Include facilities, offices or plants, warehouses and valuation when they are documented.
Structure:
1. One or two paragraphs describing the company.
2. Vision & Mission, quoted as the company states them.`,
	},
	{
		name:  "founding_team",
		shape: domain.FreeText(),
		directive: `Write the Founding Team section for {{.Subject}} using only knowledge base material.
Skip any founder without data. One bullet per founder:
- **Name, Role**: prior experience and a short profile (at most five lines).
Start with the heading "## Founding Team".`,
	},
	{
		name:  "problem_statement",
		shape: domain.FreeText(),
		directive: `Write a detailed Problem Statement section describing the problem {{.Subject}} solves.
` + groundingRules + `
## Problem Statement
### Detailed Problem Explanation (3-6 sentences)
### The Category Problem (bullets)
### Current Alternatives (bold name plus 2-3 sentences each)
### Why Now (market timing, shifts, accelerators; bullets)`,
	},
	{
		name:  "solution",
		shape: domain.FreeText(),
		directive: `Write a detailed Solution section describing what {{.Subject}} offers.
` + groundingRules + `
## Solution
### Product Description (3-6 sentences, then feature bullets with 2-3 sentences each)
### What the Product Replaces (bullets)
### Competitive Advantages (bullets)`,
	},
	{
		name:  "market_opportunity",
		shape: domain.FreeText(),
		directive: `Write a detailed Market Opportunity section for {{.Subject}}.
` + groundingRules + `
Trusted market sources include Gartner, McKinsey, Statista, Deloitte, World Bank, IMF and government statistics.
## Market Opportunity
### Overview (3-5 sentences)
### Market Size & Growth (TAM/SAM/SOM and CAGR when available)
### Key Market Drivers
Add subsections for regional opportunity, customer segments, regulatory tailwinds or technology enablers only when data supports them.`,
	},
	{
		name:  "business_model",
		shape: domain.FreeText(),
		directive: `Write a detailed Business Model section for {{.Subject}}.
` + groundingRules + `
## Business Model
### Model Narrative: a two-column table (Item | Details) covering revenue model, average contract value,
revenue growth, gross margins, LTV, LTV:CAC, refund policy and geographic revenue split.
### Current Revenue Streams: name, description, target audience and share for each stream.
### Pricing Strategy (3-5 sentences, then tiers)
### Scalability of Revenue Model (bullets)
### Looking Ahead (2-3 sentences)`,
	},
	{
		name:  "competitive_landscape",
		shape: domain.FreeText(),
		directive: `Write a Competitive Landscape section for {{.Subject}}.
` + groundingRules + `
## Competitive Landscape
### Competitor Analysis: a table of direct and indirect competitors with positioning and differentiators.
### Combined Market Opportunity and industry report findings, only where data exists.`,
	},
	{
		name:  "traction",
		shape: domain.FreeText(),
		directive: `Write the Traction section for {{.Subject}}. Create subsections only when data exists.
` + groundingRules + `
## Traction
### Overview (3-5 sentences on users, clients, revenue, adoption or recognition)
### Key Metrics (bullets)
#### Customers & Adoption
#### Financial Performance
#### Partnerships & Recognition`,
	},
	{
		name:  "go_to_market",
		shape: domain.FreeText(),
		directive: `Write the Go-To-Market Strategy section for {{.Subject}} using only knowledge base material.
Omit any subsection without data.
## Go-To-Market Strategy
### Overview (3-5 sentences)
### Distribution Channels
### Target Segments
### GTM Tactics
### Expansion Plans (2-3 sentences)`,
	},
	{
		name:  "deal_details",
		shape: domain.FreeText(),
		directive: `Write the Deal Details section for {{.Subject}} using only knowledge base material.
Skip unavailable fields.
## Deal Details
### Current Round: amount sought, purpose of the raise, expected valuation.
### Previous Funding: round type, amount, investors, date.`,
	},
	{
		name:  "risk_challenges",
		shape: domain.FreeText(),
		directive: `Write the Risks & Challenges section for {{.Subject}} using only knowledge base material.
## Risks & Challenges
A markdown table with the columns Risk | Description | Mitigant, one or two sentences per cell.`,
	},
}
