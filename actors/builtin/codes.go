package builtin

import (
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

// The built-in actor code IDs
var SystemActorCodeID cid.Cid
var AccountActorCodeID cid.Cid
var TokenActorCodeID cid.Cid
var VestingActorCodeID cid.Cid

// Set of actor code types that can represent external signing parties.
var CallerTypesSignable []cid.Cid

var builtinNames = map[cid.Cid]string{}

func init() {
	builder := cid.V1Builder{Codec: cid.Raw, MhType: mh.IDENTITY}
	makeBuiltin := func(s string) cid.Cid {
		c, err := builder.Sum([]byte(s))
		if err != nil {
			panic(err)
		}
		builtinNames[c] = s
		return c
	}

	SystemActorCodeID = makeBuiltin("tokenvest/1/system")
	AccountActorCodeID = makeBuiltin("tokenvest/1/account")
	TokenActorCodeID = makeBuiltin("tokenvest/1/token")
	VestingActorCodeID = makeBuiltin("tokenvest/1/vesting")

	CallerTypesSignable = []cid.Cid{AccountActorCodeID}
}

// IsBuiltinActor returns true if the code belongs to an actor defined in this repo.
func IsBuiltinActor(code cid.Cid) bool {
	_, isBuiltin := builtinNames[code]
	return isBuiltin
}

// ActorNameByCode returns the (string) name of the actor given a cid code.
func ActorNameByCode(code cid.Cid) string {
	if !code.Defined() {
		return "<undefined>"
	}

	name, ok := builtinNames[code]
	if !ok {
		return "<unknown>"
	}
	return name
}

// Tests whether a code CID represents an actor that can be an external principal: i.e. an account.
func IsPrincipal(code cid.Cid) bool {
	return code.Equals(AccountActorCodeID)
}
