package observability

const (
	AttrServiceName     = "service.name"
	AttrServiceVersion  = "service.version"
	AttrAgentName       = "agent.name"
	AttrAgentModel      = "agent.model"
	AttrToolName        = "tool.name"
	AttrModelName       = "model.name"
	AttrModelTokensIn   = "model.tokens.input"
	AttrModelTokensOut  = "model.tokens.output"
	AttrErrorType       = "error.type"
	AttrStatusCode      = "http.status_code"
	AttrPatternEventID  = "pattern.event_id"

	SpanAgentTurn       = "agent.turn"
	SpanModelRequest    = "agent.model_request"
	SpanToolExecution   = "agent.tool_execution"
	SpanEntityLookup    = "agent.entity_lookup"

	DefaultServiceName  = "pattern"
	DefaultSamplingRate = 1.0
	DefaultOTLPEndpoint = "localhost:4317"
	DefaultMetricsPath  = "/metrics"
)
