package main

import (
	"carbonregistry/config"
	"carbonregistry/contract"

	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric/common/flogging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Error loading configuration: " + err.Error())
	}
	flogging.ActivateSpec(cfg.LogLevel)

	cc, err := contractapi.NewChaincode(&contract.CarbonRegistryContract{})
	if err != nil {
		panic("Error creating CarbonRegistryContract: " + err.Error())
	}
	cc.Info.Title = "carbonregistry"
	cc.Info.Version = "1.0.0"

	if !cfg.ExternalService() {
		if err := cc.Start(); err != nil {
			panic("Error starting chaincode: " + err.Error())
		}
		return
	}

	tlsProps, err := cfg.TLSProperties()
	if err != nil {
		panic("Error loading chaincode TLS material: " + err.Error())
	}
	server := &shim.ChaincodeServer{
		CCID:     cfg.CCID,
		Address:  cfg.ServerAddress,
		CC:       cc,
		TLSProps: tlsProps,
	}
	if err := server.Start(); err != nil {
		panic("Error starting chaincode server: " + err.Error())
	}
}
