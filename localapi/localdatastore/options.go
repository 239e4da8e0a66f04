package localdatastore

import (
	"fmt"
	"time"
)

// Engine names accepted in the manifest.
const (
	EngineSQLite   = "sqlite"
	EngineMemory   = "memory"
	EngineRedis    = "redis"
	EngineDynamoDB = "dynamodb"
	EngineConsul   = "consul"
)

// Options is the content of the datastore_v3 manifest.
type Options struct {
	Engine    string          `yaml:"engine"`
	NoStorage bool            `yaml:"no_storage"`
	Redis     RedisOptions    `yaml:"redis"`
	DynamoDB  DynamoDBOptions `yaml:"dynamodb"`
	Consul    ConsulOptions   `yaml:"consul"`
}

type RedisOptions struct {
	Address string `yaml:"address"`
	DB      int    `yaml:"db"`
	Prefix  string `yaml:"prefix"`
}

type DynamoDBOptions struct {
	Table    string `yaml:"table"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

type ConsulOptions struct {
	Address string `yaml:"address"`
	Prefix  string `yaml:"prefix"`
}

const (
	defaultRedisAddress  = "localhost:6379"
	defaultPrefix        = "harness"
	defaultDynamoDBTable = "harness-datastore"
	defaultRegion        = "us-east-1"
	connectTimeout       = 5 * time.Second
)

// DefaultOptions returns the options used when the manifest is empty.
func DefaultOptions() Options {
	return Options{
		Engine:   EngineSQLite,
		Redis:    RedisOptions{Address: defaultRedisAddress, Prefix: defaultPrefix},
		DynamoDB: DynamoDBOptions{Table: defaultDynamoDBTable, Region: defaultRegion},
		Consul:   ConsulOptions{Prefix: defaultPrefix},
	}
}

func (o Options) validate() error {
	switch o.Engine {
	case EngineSQLite, EngineMemory, EngineRedis, EngineDynamoDB, EngineConsul:
		return nil
	default:
		return fmt.Errorf("unknown datastore engine %q", o.Engine)
	}
}
