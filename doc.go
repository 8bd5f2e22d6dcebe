/*
Package minter mints Cardano native tokens (CIP-25 NFTs) on behalf of a
connected wallet.

A Session holds the connected WalletConnector, the selected network and the
chain data provider bound to that network. The Minter drives one mint attempt
per session at a time: it validates the wallet network, fetches wallet data,
builds the minting transaction, asks the wallet to sign it and submits it.
Every wallet call is bounded by a timeout and every failure ends the attempt
with a displayable message.
*/

package minter
