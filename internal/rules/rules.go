package rules

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// Supported condition operators.
const (
	OpEq       = "eq"
	OpNeq      = "neq"
	OpGt       = "gt"
	OpLt       = "lt"
	OpGte      = "gte"
	OpLte      = "lte"
	OpIn       = "in"
	OpNin      = "nin"
	OpContains = "contains"
	OpRegex    = "regex"
)

const (
	LogicAnd = "and"
	LogicOr  = "or"
)

type Condition struct {
	Field string      `json:"field" bson:"field"`
	Op    string      `json:"op" bson:"op"`
	Value interface{} `json:"value" bson:"value"`
}

type Group struct {
	Logic      string `json:"logic" bson:"logic"`
	Conditions []Node `json:"conditions" bson:"conditions"`
}

// Node is one branch of a rule tree: exactly one of Condition or Group
// is set. The wire shape is distinguished by the presence of a "logic"
// key, so round-tripping through JSON or BSON preserves the tree.
type Node struct {
	Condition *Condition
	Group     *Group
}

func (n Node) MarshalJSON() ([]byte, error) {
	if n.Group != nil {
		return json.Marshal(n.Group)
	}
	if n.Condition != nil {
		return json.Marshal(n.Condition)
	}
	return nil, fmt.Errorf("empty rule node")
}

func (n *Node) UnmarshalJSON(data []byte) error {
	var probe struct {
		Logic *string `json:"logic"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if probe.Logic != nil {
		var g Group
		if err := json.Unmarshal(data, &g); err != nil {
			return err
		}
		n.Group = &g
		n.Condition = nil
		return nil
	}
	var c Condition
	if err := json.Unmarshal(data, &c); err != nil {
		return err
	}
	n.Condition = &c
	n.Group = nil
	return nil
}

func (n Node) MarshalBSONValue() (bsontype.Type, []byte, error) {
	if n.Group != nil {
		data, err := bson.Marshal(n.Group)
		return bsontype.EmbeddedDocument, data, err
	}
	if n.Condition != nil {
		data, err := bson.Marshal(n.Condition)
		return bsontype.EmbeddedDocument, data, err
	}
	return bsontype.Type(0), nil, fmt.Errorf("empty rule node")
}

func (n *Node) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	if t != bsontype.EmbeddedDocument {
		return fmt.Errorf("cannot decode %v into rule node", t)
	}
	raw := bson.Raw(data)
	if _, err := raw.LookupErr("logic"); err == nil {
		var g Group
		if err := bson.Unmarshal(data, &g); err != nil {
			return err
		}
		n.Group = &g
		n.Condition = nil
		return nil
	}
	var c Condition
	if err := bson.Unmarshal(data, &c); err != nil {
		return err
	}
	n.Condition = &c
	n.Group = nil
	return nil
}

// Evaluate runs the tree against a payload. A nil tree admits everything.
// Evaluation is total: type coercion failures and invalid patterns
// degrade to false, they never return an error.
func Evaluate(payload map[string]interface{}, g *Group) bool {
	if g == nil {
		return true
	}
	return evaluateGroup(payload, *g)
}

func evaluateGroup(payload map[string]interface{}, g Group) bool {
	if len(g.Conditions) == 0 {
		return true
	}

	if g.Logic == LogicAnd {
		for _, node := range g.Conditions {
			if !evaluateNode(payload, node) {
				return false
			}
		}
		return true
	}

	for _, node := range g.Conditions {
		if evaluateNode(payload, node) {
			return true
		}
	}
	return false
}

func evaluateNode(payload map[string]interface{}, n Node) bool {
	if n.Group != nil {
		return evaluateGroup(payload, *n.Group)
	}
	if n.Condition != nil {
		return evaluateCondition(payload, *n.Condition)
	}
	return true
}

func evaluateCondition(payload map[string]interface{}, c Condition) bool {
	fieldVal := payload[c.Field]

	switch c.Op {
	case OpEq:
		return stringify(fieldVal) == stringify(c.Value)
	case OpNeq:
		return stringify(fieldVal) != stringify(c.Value)
	case OpGt:
		return compareNumeric(fieldVal, c.Value, func(a, b float64) bool { return a > b })
	case OpLt:
		return compareNumeric(fieldVal, c.Value, func(a, b float64) bool { return a < b })
	case OpGte:
		return compareNumeric(fieldVal, c.Value, func(a, b float64) bool { return a >= b })
	case OpLte:
		return compareNumeric(fieldVal, c.Value, func(a, b float64) bool { return a <= b })
	case OpIn:
		return membership(fieldVal, c.Value)
	case OpNin:
		return !membership(fieldVal, c.Value)
	case OpContains:
		return strings.Contains(strings.ToLower(stringify(fieldVal)), strings.ToLower(stringify(c.Value)))
	case OpRegex:
		re, err := regexp.Compile(stringify(c.Value))
		if err != nil {
			return false
		}
		return re.MatchString(stringify(fieldVal))
	default:
		return true
	}
}

func stringify(v interface{}) string {
	if v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func compareNumeric(fieldVal, targetVal interface{}, cmp func(a, b float64) bool) bool {
	a, ok := toFloat(fieldVal)
	if !ok {
		return false
	}
	b, ok := toFloat(targetVal)
	if !ok {
		return false
	}
	return cmp(a, b)
}

// membership treats a list target as set membership and anything else
// as substring-of-string.
func membership(fieldVal, targetVal interface{}) bool {
	if list, ok := targetVal.([]interface{}); ok {
		needle := stringify(fieldVal)
		for _, item := range list {
			if stringify(item) == needle {
				return true
			}
		}
		return false
	}
	return strings.Contains(stringify(targetVal), stringify(fieldVal))
}
