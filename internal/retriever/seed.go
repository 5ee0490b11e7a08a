package retriever

var seedDocuments = []Document{
	{
		ID:            "doc_001",
		Title:         "NDIS Pricing Arrangements and Price Limits 2024-25",
		Category:      CategoryPricing,
		Version:       "1.2",
		EffectiveDate: "2024-07-01",
		URL:           "https://ndis.gov.au/pricing",
	},
	{
		ID:            "doc_002",
		Title:         "Operational Guideline: Access to the NDIS",
		Category:      CategoryOperationalGuideline,
		Version:       "4.0",
		EffectiveDate: "2023-11-15",
		URL:           "https://ndis.gov.au/og/access",
	},
}

var seedChunks = []Chunk{
	{
		ID:            "chunk_1",
		DocumentID:    "doc_001",
		Page:          15,
		SectionHeader: "Core Supports",
		Content:       "Assistance with Daily Life: These supports provide assistance with everyday needs, including household cleaning and yard maintenance. Price Limit: $65.47/hr for standard intensity.",
	},
	{
		ID:            "chunk_2",
		DocumentID:    "doc_001",
		Page:          18,
		SectionHeader: "Transport",
		Content:       "Participants can use their funding to pay a provider to transport them to an activity. This is not for family transport.",
	},
	{
		ID:            "chunk_3",
		DocumentID:    "doc_002",
		Page:          4,
		SectionHeader: "Age Requirements",
		Content:       "To access the NDIS, you must be under 65 years of age when you make your access request.",
	},
}
