package httpx

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const createOrderSchemaURI = "urn:saga:schema:create-order"

const createOrderSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["customerId", "items", "shippingAddress", "paymentMethodToken"],
  "properties": {
    "customerId":         {"type": "string", "minLength": 1},
    "shippingAddress":    {"type": "string", "minLength": 1},
    "paymentMethodToken": {"type": "string", "minLength": 1},
    "failAt":             {"enum": ["order", "shipping", "payment"]},
    "items": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["sku", "qty", "price"],
        "properties": {
          "sku":   {"type": "string", "minLength": 1},
          "qty":   {"type": "integer", "exclusiveMinimum": 0},
          "price": {"type": "number", "exclusiveMinimum": 0}
        }
      }
    }
  }
}`

var compileCreateOrderSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(createOrderSchema))
	if err != nil {
		return nil, fmt.Errorf("parse create order schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(createOrderSchemaURI, doc); err != nil {
		return nil, fmt.Errorf("add create order schema: %w", err)
	}
	return c.Compile(createOrderSchemaURI)
})

func validateCreateOrder(body []byte) error {
	schema, err := compileCreateOrderSchema()
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("body is not JSON: %w", err)
	}
	return schema.Validate(inst)
}
