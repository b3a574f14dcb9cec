package analyzer

var BuildSystemPrompt = buildSystemPrompt

var ResponseSchema = responseSchema
