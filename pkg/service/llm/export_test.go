package llm

var FactSchema = factSchema
