package redis

// Key prefixes for primary entity storage.
const (
	prefixEventType    = "dispatch:evtype:"
	prefixSubscription = "dispatch:sub:"
	prefixEvent        = "dispatch:evt:"
	prefixDelivery     = "dispatch:del:"
	prefixAttempt      = "dispatch:att:"
	prefixDLQ          = "dispatch:dlq:"
)

// Key prefixes for unique indexes.
const (
	uniqueEventTypeName = "dispatch:u:evtype:name:"
	uniqueEventIdem     = "dispatch:u:evt:idem:"
)

// Key prefixes for sorted set indexes.
const (
	zEventTypeAll  = "dispatch:z:evtype:all"
	zSubTenant     = "dispatch:z:sub:tenant:" // + tenant ID
	zEventAll      = "dispatch:z:evt:all"
	zEventTenant   = "dispatch:z:evt:tenant:" // + tenant ID
	zDeliverySub   = "dispatch:z:del:sub:"    // + subscription ID
	zDeliveryEvt   = "dispatch:z:del:evt:"    // + event ID
	zDeliveryPend  = "dispatch:z:del:pending"
	zDeliveryClaim = "dispatch:z:del:claimed"
	zAttemptSub    = "dispatch:z:att:sub:" // + subscription ID
	zAttemptDel    = "dispatch:z:att:del:" // + delivery ID
	zDLQAll        = "dispatch:z:dlq:all"
	zDLQSub        = "dispatch:z:dlq:sub:" // + subscription ID
)

// Key prefixes for set indexes.
const (
	sSubActive = "dispatch:s:sub:tenant:" // + tenantID + ":active"
)

// entityKey returns the primary key for an entity.
func entityKey(prefix, id string) string {
	return prefix + id
}

// activeSetKey returns the set key for active subscriptions of a tenant.
func activeSetKey(tenantID string) string {
	return sSubActive + tenantID + ":active"
}
