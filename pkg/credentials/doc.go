// Package credentials stores the Weibo login cookie.
//
// Accounts are looked up in the system keyring, then an encrypted file in
// the user's config directory, then the WEIBOCRAWLER_COOKIE environment
// variable.
package credentials
