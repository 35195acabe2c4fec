package relayddb

import (
	relaycli "github.com/chatrelay/relay-go-utils/relay-cli"
	"github.com/urfave/cli/v2"
)

var DDBOpts struct {
	DAXCluster string
	TableName  string
	Endpoint   string
	Region     string
}

var DAXClusterFlag = relaycli.StringFlag("dax-cluster", "The DAX cluster to connect to", &DDBOpts.DAXCluster)
var TableNameFlag = relaycli.StringFlag("table-name", "The connections table; defaults to {env}-relay--connections", &DDBOpts.TableName)
var EndpointFlag = relaycli.StringFlag("ddb-endpoint", "Override the DynamoDB endpoint, e.g. http://localhost:8000 for DynamoDB local", &DDBOpts.Endpoint)
var RegionFlag = relaycli.StringFlag("region", "AWS region", &DDBOpts.Region, "us-east-2")

var DDBFlags = []cli.Flag{
	DAXClusterFlag,
	TableNameFlag,
	EndpointFlag,
	RegionFlag,
}
