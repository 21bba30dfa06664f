package engine

import "fmt"

// RetrievalToolName is the registry name of the document retrieval tool.
// The engine recognises retrieval results by this name on the message's
// tool-name field, never by matching on message text.
const RetrievalToolName = "retrieve_document"

// documentGuidance is persisted into the thread history once, the first
// time a turn runs with an attached document.
func documentGuidance(path string) string {
	return fmt.Sprintf(`A document has been uploaded at: %s

When the user asks questions about the document:
- Call the %s tool with file_path=%q and query set to the user's question
- The tool returns multiple relevant passages
- Read and synthesize ALL returned passages, not just the first one

For general questions unrelated to the document, answer normally.`, path, RetrievalToolName, path)
}

// synthesisGuidance is injected in-memory only, immediately before a
// trailing retrieval tool result, for the model invocation that reads it.
const synthesisGuidance = `The next message contains multiple passages retrieved from the document. Read every passage, identify the distinct topics and themes across them, and synthesize all of that information into one coherent answer. If the user asked what the document is about, describe the entire document, not just the first passage. If the user asked for a specific item, locate it precisely within the passages.`
