package decision

import (
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// elementSchemaJSON describes one decision object as models emit it: numbers
// may arrive quoted, and a few field aliases are tolerated.
const elementSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "anyOf": [
    {"required": ["action"]},
    {"required": ["signal"]}
  ],
  "properties": {
    "symbol": {"type": "string"},
    "coin": {"type": "string"},
    "action": {"type": "string"},
    "signal": {"type": "string"},
    "quantity": {"$ref": "#/definitions/numeric"},
    "qty": {"$ref": "#/definitions/numeric"},
    "leverage": {"$ref": "#/definitions/numeric"},
    "risk_usd": {"$ref": "#/definitions/numeric"},
    "profit_target": {"$ref": "#/definitions/numeric"},
    "stop_loss": {"$ref": "#/definitions/numeric"},
    "confidence": {"$ref": "#/definitions/numeric"},
    "invalidation_condition": {"type": ["string", "null"]},
    "justification": {"type": ["string", "null"]},
    "reasoning": {"type": ["string", "null"]},
    "exit_plan": {"type": ["object", "null"]}
  },
  "definitions": {
    "numeric": {"type": ["number", "string", "null"]}
  }
}`

var elementSchema = jsonschema.MustCompileString("decision_element.json", elementSchemaJSON)

// OutputSchema is the contract shown to models in the prompt.
const OutputSchema = `{
  "decisions": [
    {
      "symbol": "string, one of the tradable symbols",
      "action": "open_long | open_short | hold | close",
      "quantity": "number > 0, required for open_long/open_short",
      "leverage": "number >= 1, open_long/open_short only",
      "risk_usd": "number, account currency put at risk",
      "profit_target": "number, price",
      "stop_loss": "number, price",
      "invalidation_condition": "string",
      "confidence": "number in (0, 1]",
      "justification": "string"
    }
  ]
}`
