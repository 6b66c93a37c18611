package models

// Metadata keys attached to every chunk.
const (
	MetaSource      = "source"
	MetaTitle       = "title"
	MetaType        = "type"
	MetaFilename    = "filename"
	MetaChunkIndex  = "chunk_index"
	MetaTotalChunks = "total_chunks"
)

// Source type tags.
const (
	TypeWebpage = "webpage"
	TypeFile    = "file"
	TypeText    = "text"
)

// DirectInputSource is the synthetic source tag for raw-text ingestion.
// It must stay stable so re-ingesting the same text derives the same IDs.
const DirectInputSource = "direct_input"

// RAGSystemPrompt constrains the model to the retrieved context.
const RAGSystemPrompt = `Answer questions using ONLY the provided context. Be concise and factual.

Rules:
1. Use ONLY information from the context
2. If context doesn't contain enough info, say "I don't have enough information in my knowledge base to answer this question fully"
3. Cite source(s) used
4. Keep answers brief and focused

Context:
%s`

// RAGUserPrompt carries the user question under the context.
const RAGUserPrompt = `Question: %s

Answer concisely based on the context above. Cite sources when relevant.`

// Fixed degraded answers. These are returned instead of errors on the query
// path once retrieval has succeeded.
const (
	NoKnowledgeAnswer = "I couldn't find any relevant information in my knowledge base to answer your question. Please try rephrasing or ask about a different topic."

	ProviderUnavailableAnswer = "The language model service is not running or not accessible. Please start it and try again."

	ProviderSlowAnswer = "The model is taking too long to respond. This often happens on the first request when the model needs to be loaded. Please wait a moment and try again."
)

// ContextSeparator joins formatted context blocks in the prompt.
const ContextSeparator = "\n\n---\n\n"

// SourceDisplayLimit caps citation content length for display.
const SourceDisplayLimit = 500
