package state

import (
	"gamebankcore/core/types"
	"gamebankcore/objectstore"
)

var contractTable = objectstore.NewTable[types.SignedContract]("contract/")
var contractUserTable = objectstore.NewTable[types.ContractUser]("contractuser/")

// GetContract looks up a deployed contract by name.
func GetContract(rw objectstore.RW, name string) (types.SignedContract, bool, error) {
	return contractTable.Get(rw, []byte(name))
}

// CreateContract deploys a new contract.
func CreateContract(rw objectstore.RW, c types.SignedContract) error {
	return contractTable.Put(rw, []byte(c.Name), c)
}

// ModifyContract applies a read-modify-write mutation to a deployed
// contract (e.g. balance changes from contract.transfer host calls).
func ModifyContract(rw objectstore.RW, name string, mutate func(*types.SignedContract)) error {
	return contractTable.Modify(rw, []byte(name), mutate)
}

// GetContractUser loads a contract's per-user JSON state, if it exists.
func GetContractUser(rw objectstore.RW, contract, user string) (types.ContractUser, bool, error) {
	return contractUserTable.Get(rw, []byte(types.ContractUserKey(contract, user)))
}

// PutContractUser creates or replaces a contract's per-user JSON state,
// persisted after a contract_call returns (section 4.6).
func PutContractUser(rw objectstore.RW, u types.ContractUser) error {
	return contractUserTable.Put(rw, []byte(types.ContractUserKey(u.Contract, u.User)), u)
}
