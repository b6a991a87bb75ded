package client

import (
	"github.com/confluentinc/confluent-kafka-go/v2/schemaregistry"
	"github.com/confluentinc/confluent-kafka-go/v2/schemaregistry/serde"
	"github.com/confluentinc/confluent-kafka-go/v2/schemaregistry/serde/avro"

	"github.com/ptoraskar/fluvii"
)

// Decoder deserializes avro message values against a schema registry. It is
// collaborator glue for the application loop; the consumption engines never
// look inside message payloads.
type Decoder struct {
	value *avro.GenericDeserializer
}

func NewDecoder(registryURL string) (*Decoder, error) {
	rc, err := schemaregistry.NewClient(schemaregistry.NewConfig(registryURL))
	if err != nil {
		return nil, fluvii.Errorf("creating schema registry client: %w", err)
	}
	d, err := avro.NewGenericDeserializer(rc, serde.ValueSerde, avro.NewDeserializerConfig())
	if err != nil {
		return nil, fluvii.Errorf("creating avro deserializer: %w", err)
	}
	return &Decoder{value: d}, nil
}

// Decode returns the decoded message value.
func (d *Decoder) Decode(m *fluvii.Message) (interface{}, error) {
	return d.value.Deserialize(m.Topic, m.Value)
}

// DecodeInto decodes the message value into the given struct.
func (d *Decoder) DecodeInto(m *fluvii.Message, into interface{}) error {
	return d.value.DeserializeInto(m.Topic, m.Value, into)
}
