package anthropic

// BuildCachedSystemBlocks constructs system content blocks with a cache
// breakpoint. The reconciliation prompts are static across requests, so the
// system block is cached for 5 minutes.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	return []SystemBlock{
		{
			Text: text,
			CacheControl: &CacheControl{
				TTL: "5m",
			},
		},
	}
}
