package prompts

// IterationLimitMessage is returned to the user when the agent uses up
// its tool round-trips without producing a final answer.
const IterationLimitMessage = "I've reached the tool usage limit for this request. Please try a more specific question."

// EmptyResponseFallback is the user-facing message returned when the
// model ends its turn without any text.
const EmptyResponseFallback = "I processed your request but wasn't able to compose a response. Please try again."
