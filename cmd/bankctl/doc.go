// Package main (cmd/bankctl) is a command line client for the bank API.
//
// Every command first loads the stored credentials and advances them to a live
// session: a fresh key is generated and installed, the device is registered
// with the API secret, and a session is created. A stored session is checked
// against the server and renewed when it was rejected. Each step is persisted
// before the next one starts, so an interrupted run resumes where it stopped.
//
// Credentials are kept in one or more stores given as URIs. With
// --store-passphrase the record is sealed before it is written.
//
// Example usage:
//
//	export BANKCTL_API_KEY=...
//	export BANKCTL_STORE=file://$HOME/.config/bankctl/credentials.json
//	export BANKCTL_STORE_PASSPHRASE=...
//
//	bankctl bootstrap
//	bankctl accounts --all
//	bankctl payment-request create --account 42 --amount 12.50 --description "Dinner"
//	bankctl payment-request get --account 42 --id 7
//	bankctl payment-request close --account 42 --id 7
//
// Against a local sandbox:
//
//	bankctl --base-url http://127.0.0.1:8080/v1 --api-key anything bootstrap
//
// Output is JSON on stdout; logs go to stderr.
package main
