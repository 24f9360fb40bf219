package mocktpl

// Fixture URL sets backing the image placeholders. Expansion picks from
// these at serve time so repeated requests see different images.

var landscapeImageURLs = []string{
	"https://images.unsplash.com/photo-1506744038136-46273834b3fb?w=800",
	"https://images.unsplash.com/photo-1470071459604-3b5ec3a7fe05?w=800",
	"https://images.unsplash.com/photo-1441974231531-c6227db76b6e?w=800",
	"https://images.unsplash.com/photo-1501785888041-af3ef285b470?w=800",
	"https://images.unsplash.com/photo-1472214103451-9374bd1c798e?w=800",
	"https://images.unsplash.com/photo-1433086966358-54859d0ed716?w=800",
	"https://images.unsplash.com/photo-1465146344425-f00d5f5c8f07?w=800",
	"https://images.unsplash.com/photo-1469474968028-56623f02e42e?w=800",
}

var goodsImageURLs = []string{
	"https://images.unsplash.com/photo-1523275335684-37898b6baf30?w=600",
	"https://images.unsplash.com/photo-1505740420928-5e560c06d30e?w=600",
	"https://images.unsplash.com/photo-1542291026-7eec264c27ff?w=600",
	"https://images.unsplash.com/photo-1546868871-7041f2a55e12?w=600",
	"https://images.unsplash.com/photo-1585386959984-a4155224a1ad?w=600",
	"https://images.unsplash.com/photo-1572635196237-14b3f281503f?w=600",
	"https://images.unsplash.com/photo-1560343090-f0409e92791a?w=600",
}

var avatarURLs = []string{
	"https://i.pravatar.cc/150?img=1",
	"https://i.pravatar.cc/150?img=5",
	"https://i.pravatar.cc/150?img=12",
	"https://i.pravatar.cc/150?img=20",
	"https://i.pravatar.cc/150?img=33",
	"https://i.pravatar.cc/150?img=47",
	"https://i.pravatar.cc/150?img=56",
	"https://i.pravatar.cc/150?img=68",
}
