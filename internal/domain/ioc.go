package domain

import "time"

type IOCType string

const (
	IOCHashSHA256     IOCType = "hash_sha256"
	IOCHashSHA1       IOCType = "hash_sha1"
	IOCHashMD5        IOCType = "hash_md5"
	IOCCVE            IOCType = "cve"
	IOCYaraRule       IOCType = "yara_rule"
	IOCUserAgent      IOCType = "user_agent"
	IOCEmail          IOCType = "email"
	IOCURL            IOCType = "url"
	IOCEthAddress     IOCType = "eth_address"
	IOCBTCAddress     IOCType = "btc_address"
	IOCRegistryKey    IOCType = "registry_key"
	IOCFilePath       IOCType = "file_path"
	IOCMitreTechnique IOCType = "mitre_technique"
	IOCIP             IOCType = "ip"
	IOCDomain         IOCType = "domain"
)

type IOC struct {
	ID        int64   `db:"id" json:"-"`
	ArticleID int64   `db:"article_id" json:"-"`
	Type      IOCType `db:"type" json:"type"`
	Value     string  `db:"value" json:"value"`
	Context   string  `db:"context" json:"context,omitempty"`
}

// IOCMatch is a search hit joined with the article that owns it.
type IOCMatch struct {
	IOC
	Source    string    `db:"source"`
	Title     string    `db:"title"`
	URL       string    `db:"url"`
	ScrapedAt time.Time `db:"scraped_date"`
}

// GroupIOCs buckets iocs by type, keeping input order inside each bucket.
func GroupIOCs(iocs []IOC) map[IOCType][]IOC {
	grouped := make(map[IOCType][]IOC)
	for _, ioc := range iocs {
		grouped[ioc.Type] = append(grouped[ioc.Type], ioc)
	}
	return grouped
}
