package rerank

var ResponseSchema = responseSchema
