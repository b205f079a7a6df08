package observability

// Shared span and attribute names used across the service.
const (
	AttrAgentPath       = "agent.path"
	AttrToolName        = "tool.name"
	AttrLLMModel        = "llm.model"
	AttrLLMTokensInput  = "llm.tokens.input"
	AttrLLMTokensOutput = "llm.tokens.output"
	AttrTaskID          = "task.id"
	AttrErrorType       = "error.type"
	AttrHTTPMethod      = "http.method"
	AttrHTTPRoute       = "http.route"
	AttrHTTPStatusCode  = "http.status_code"

	SpanAgentExecute  = "agent.execute"
	SpanLLMGenerate   = "llm.generate"
	SpanToolExecution = "tool.execution"
	SpanRetrieval     = "retrieval.search"
	SpanHTTPRequest   = "http.request"

	DefaultServiceName = "paddock"
)
