package contracts

import "fmt"

// PharmaContract tracks cold-chain shipments: a constructor-configured
// acceptable temperature range, and a record_temperature call that appends
// a reading and flags a shipment BREACHED (stickily) once any reading
// falls outside range. Grounded on
// original_source/node/src/contracts/pharma.py, with scaled-integer
// temperatures in place of the original's floats (spec.md §9).
type PharmaContract struct {
	address string
	sender  string
	storage map[string]interface{}
}

// NewPharmaContract satisfies Constructor.
func NewPharmaContract(address, sender string) Contract {
	return &PharmaContract{address: address, sender: sender, storage: map[string]interface{}{}}
}

func (c *PharmaContract) Storage() map[string]interface{}    { return c.storage }
func (c *PharmaContract) SetStorage(s map[string]interface{}) { c.storage = s }

// Construct expects min_temp and max_temp, both scaled integers (e.g.
// hundredths of a degree).
func (c *PharmaContract) Construct(args map[string]interface{}) error {
	minTemp, err := scaledInt(args, "min_temp")
	if err != nil {
		return fmt.Errorf("PharmaContract constructor: %w", err)
	}
	maxTemp, err := scaledInt(args, "max_temp")
	if err != nil {
		return fmt.Errorf("PharmaContract constructor: %w", err)
	}
	if minTemp > maxTemp {
		return fmt.Errorf("PharmaContract constructor: min_temp %d exceeds max_temp %d", minTemp, maxTemp)
	}

	c.storage = map[string]interface{}{
		"owner":     c.sender,
		"min_temp":  minTemp,
		"max_temp":  maxTemp,
		"shipments": map[string]interface{}{},
	}
	return nil
}

// Dispatch is PharmaContract's explicit method registry, replacing the
// reference executor's getattr(contract_instance, method_name) reflection.
func (c *PharmaContract) Dispatch(method string, params map[string]interface{}) error {
	switch method {
	case "record_temperature":
		return c.recordTemperature(params)
	default:
		return fmt.Errorf("PharmaContract: unknown method %q", method)
	}
}

func (c *PharmaContract) recordTemperature(params map[string]interface{}) error {
	shipmentID, _ := params["shipment_id"].(string)
	if shipmentID == "" {
		return fmt.Errorf("record_temperature: missing shipment_id")
	}
	temp, err := scaledInt(params, "temp")
	if err != nil {
		return fmt.Errorf("record_temperature: %w", err)
	}
	location := params["location"]
	evidenceCID, _ := params["evidence_cid"].(string)

	minTemp, err := scaledInt(c.storage, "min_temp")
	if err != nil {
		return fmt.Errorf("record_temperature: contract not constructed: %w", err)
	}
	maxTemp, err := scaledInt(c.storage, "max_temp")
	if err != nil {
		return fmt.Errorf("record_temperature: contract not constructed: %w", err)
	}

	shipments, _ := c.storage["shipments"].(map[string]interface{})
	if shipments == nil {
		shipments = map[string]interface{}{}
	}

	shipment, ok := shipments[shipmentID].(map[string]interface{})
	if !ok {
		shipment = map[string]interface{}{
			"status":   "IN_TRANSIT",
			"readings": []interface{}{},
		}
	}

	currentStatus, _ := shipment["status"].(string)
	outOfRange := temp < minTemp || temp > maxTemp
	breached := currentStatus == "BREACHED" || outOfRange // sticky once breached
	if breached {
		shipment["status"] = "BREACHED"
	} else {
		shipment["status"] = "IN_TRANSIT"
	}

	reading := map[string]interface{}{
		"temp":     temp,
		"location": location,
		"reporter": c.sender,
	}
	if evidenceCID != "" {
		reading["evidence_cid"] = evidenceCID
	}

	readings, _ := shipment["readings"].([]interface{})
	readings = append(readings, reading)
	shipment["readings"] = readings

	shipments[shipmentID] = shipment
	c.storage["shipments"] = shipments
	return nil
}
