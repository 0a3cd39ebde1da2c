// Package keyvault owns the local identity keypairs and migrates keys left
// behind by older clients.
package keyvault
